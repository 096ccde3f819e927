// Package all imports every supported endpoint layout.
//
// Import this package for its side effects to register all layouts:
//
//	import (
//		pkgsystem "github.com/Tryboy869/pkg-system"
//		_ "github.com/Tryboy869/pkg-system/all"
//	)
//
//	// Now all layouts are available
//	layouts := pkgsystem.SupportedLayouts()
//	// ["bitbucket", "github", "gitlab", "static"]
package all

import (
	_ "github.com/Tryboy869/pkg-system/internal/bitbucket"
	_ "github.com/Tryboy869/pkg-system/internal/github"
	_ "github.com/Tryboy869/pkg-system/internal/gitlab"
	_ "github.com/Tryboy869/pkg-system/internal/static"
)
