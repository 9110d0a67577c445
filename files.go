package portal

import (
	"embed"
	"io/fs"
)

//go:embed data/views
var viewsFS embed.FS

// GetViewsFS returns the default django templates of the portal pages,
// rooted at the views directory
func GetViewsFS() fs.FS {
	sub, err := fs.Sub(viewsFS, "data/views")
	if err != nil {
		panic(err)
	}
	return sub
}
