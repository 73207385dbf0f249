package validation

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Walks the token stream of an XML payload, returning its root element name.
// A syntax error is reported with the line the decoder stopped at.
func wellFormedRoot(text []byte) (string, int, error) {
	decoder := xml.NewDecoder(bytes.NewReader(text))
	root := ""
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) {
				return root, syntaxErr.Line, err
			}
			return root, 0, err
		}
		if start, ok := token.(xml.StartElement); ok && root == "" {
			root = start.Name.Local
		}
	}
	if root == "" {
		return "", 0, fmt.Errorf("document contains no elements")
	}
	return root, 0, nil
}
