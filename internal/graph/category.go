package graph

import (
	"strings"

	"github.com/phobologic/repoorbit/internal/model"
)

var segmentCategories = map[string]model.Category{
	"server":     model.CategoryServer,
	"backend":    model.CategoryServer,
	"client":     model.CategoryClient,
	"frontend":   model.CategoryClient,
	"components": model.CategoryClient,
	"ui":         model.CategoryClient,
	"shared":     model.CategoryShared,
	"common":     model.CategoryShared,
	"types":      model.CategoryShared,
	"lib":        model.CategoryLib,
	"utils":      model.CategoryLib,
	"util":       model.CategoryLib,
	"helpers":    model.CategoryLib,
	"build":      model.CategoryBuild,
	"scripts":    model.CategoryBuild,
	"tools":      model.CategoryBuild,
	"config":     model.CategoryBuild,
	"api":        model.CategoryAPI,
	"routes":     model.CategoryAPI,
	"pages":      model.CategoryPages,
	"app":        model.CategoryPages,
	"views":      model.CategoryPages,
	"screens":    model.CategoryPages,
	"export":     model.CategoryExport,
	"exports":    model.CategoryExport,
	"exporter":   model.CategoryExport,
}

// Categorize assigns a category from the first path segment of id that
// names one. File extensions are ignored, so "api.ts" counts as "api".
func Categorize(id string) model.Category {
	for _, seg := range strings.Split(id, "/") {
		seg = strings.ToLower(seg)
		if dot := strings.IndexByte(seg, '.'); dot > 0 {
			seg = seg[:dot]
		}
		if c, ok := segmentCategories[seg]; ok {
			return c
		}
	}
	return model.CategoryOther
}
