package rdbms

import (
	"strings"
)

// SchemaTable is a table name optionally qualified by its schema (warehouse namespace).
type SchemaTable struct {
	SchemaTable string `errorTxt:"[<schema>.]<object>" mandatory:"yes"`
}

func NewSchemaTable(schema string, table string) SchemaTable {
	if schema == "" {
		return SchemaTable{table}
	}
	return SchemaTable{schema + "." + table}
}

// isQuotedTable is true for a quoted "random.table" that is not a regular "schema"."table".
func (st SchemaTable) isQuotedTable() bool {
	s := st.SchemaTable
	return len(s) > 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && !strings.Contains(s, `"."`)
}

// split returns the schema and table parts.
func (st SchemaTable) split() (schema string, table string) {
	if st.isQuotedTable() {
		return "", st.SchemaTable
	}
	i := strings.Index(st.SchemaTable, ".")
	if i < 0 { // if we have just a table...
		return "", st.SchemaTable
	}
	return st.SchemaTable[:i], st.SchemaTable[i+1:]
}

func (st SchemaTable) GetTable() string {
	_, t := st.split()
	return t
}

func (st SchemaTable) GetSchema() string {
	s, _ := st.split()
	return s
}

func (st SchemaTable) String() string {
	return st.SchemaTable
}
