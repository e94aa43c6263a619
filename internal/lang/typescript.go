package lang

import (
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func init() {
	Languages["typescript"] = &Language{
		Name:       "typescript",
		Extensions: []string{".ts"},
		lang:       typescript.GetLanguage(),
	}
}
