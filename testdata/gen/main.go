// Command gen writes the users fixture in every format the loader supports.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/datasetq/datasetq/loader"
	"github.com/datasetq/datasetq/table"
	"github.com/datasetq/datasetq/value"
)

type user struct {
	Name string
	Age  int64
	City string
}

var users = []user{
	{"Alice", 30, "NY"},
	{"Bob", 25, "LA"},
	{"Charlie", 35, "NY"},
	{"Diana", 28, "SF"},
	{"Eve", 22, "LA"},
	{"Frank", 40, "NY"},
}

func main() {
	dir := "testdata"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	b := table.NewBuilder([]string{"name", "age", "city"})
	for _, u := range users {
		b.AddRow([]table.Cell{table.StrVal(u.Name), table.IntVal(u.Age), table.StrVal(u.City)})
	}
	t, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	opts := loader.DefaultOptions()
	opts.Overwrite = true
	for _, format := range loader.Formats {
		path := filepath.Join(dir, "users."+string(format))
		if format == loader.SQLite {
			path = filepath.Join(dir, "users.db#users")
		}
		if err := loader.Write(path, value.TableVal(t), opts); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", path)
	}
}
