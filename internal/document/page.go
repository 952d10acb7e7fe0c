package document

import "context"

// Page is one rendered image unit of the source document. Index is 0-based
// and stable for the life of the document. Hint is an optional raw-text
// fragment that may be empty; nothing downstream is allowed to rely on it,
// since source documents are defined to have no usable text layer.
type Page struct {
	Index int
	Image []byte
	MIME  string
	Hint  string
}

// Renderer turns a source document into its page images, one per physical
// page, in stable index order.
type Renderer interface {
	Render(ctx context.Context, path string) ([]Page, error)
}
