package lang

import (
	"github.com/smacker/go-tree-sitter/javascript"
)

func init() {
	Languages["javascript"] = &Language{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs", ".cjs"},
		lang:       javascript.GetLanguage(),
	}
}
