// Package route defines the navigation target handed to a page registry
// after every completed navigation, and the canonical meta schema the
// registry understands.
//
// A router adapter builds a Target from whatever its router reports:
//
//	t := route.Target{
//	    FullPath: "/users?page=2",
//	    Name:     "UserList",
//	    Meta:     route.Meta{Title: "Users"},
//	}
//
// Loose metadata bags (JSON bodies, route tables) are parsed with
// MetaFromMap. Exactly one key is accepted per concept:
//
//	cacheEligible  bool  keep the page component alive (default true)
//	hidden         bool  never register the page as a tab
//	pinned         bool  survive close-others and close-all
//	title, icon    string
//
// Everything else is preserved in Meta.Extra.
package route
