package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/datasetq/datasetq/value"
)

func readJSON(r io.Reader, _ Options) (value.Value, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return value.Null(), err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return value.Null(), nil
	}
	return value.ParseJSON(data)
}

func readJSONL(r io.Reader, opts Options) (value.Value, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var rows []value.Value
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		v, err := value.ParseJSON(text)
		if err != nil {
			return value.Null(), fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, v)
		if opts.MaxRows > 0 && len(rows) >= opts.SkipRows+opts.MaxRows {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return value.Null(), err
	}
	return value.ArrayVal(rows), nil
}

func readYAML(r io.Reader, _ Options) (value.Value, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return value.Null(), nil
		}
		return value.Null(), err
	}
	return value.FromGo(doc), nil
}

func writeJSON(w io.Writer, v value.Value, _ Options) error {
	if _, err := io.WriteString(w, value.Format(v, "  ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func writeJSONL(w io.Writer, v value.Value, _ Options) error {
	rows, err := rowsOf(v)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		bw.WriteString(r.String())
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func writeYAML(w io.Writer, v value.Value, _ Options) error {
	if v.Kind == value.KindDeferredTable {
		t, err := v.Lazy.Collect()
		if err != nil {
			return err
		}
		v = value.TableVal(t)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(value.ToGo(v)); err != nil {
		return err
	}
	return enc.Close()
}
