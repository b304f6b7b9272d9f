package librarian

import "library-client/cache"

const (
	tagBooks   = "Books"
	tagBorrows = "Borrows"
)

var (
	listTag    = cache.Tag{Type: tagBooks, ID: "LIST"}
	summaryTag = cache.Tag{Type: tagBorrows, ID: "SUMMARY"}
)

func bookTag(id string) cache.Tag { return cache.Tag{Type: tagBooks, ID: id} }
