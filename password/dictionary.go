package password

import (
	"bufio"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"strings"
)

//go:embed dictionary.txt
var builtinDictionary string

// Dictionary is a set of common passwords. Lookups are case-insensitive.
// A Dictionary is read-only after construction.
type Dictionary struct {
	data map[string]struct{}
}

// DefaultDictionary returns the embedded common-password list.
func DefaultDictionary() *Dictionary {
	d, _ := readDictionary(strings.NewReader(builtinDictionary))
	return d
}

// LoadDictionary reads one password per line from path. Blank lines and
// lines starting with '#' are skipped. An empty path yields the embedded list.
func LoadDictionary(path string) (*Dictionary, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDictionary(), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readDictionary(f)
}

func readDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{data: map[string]struct{}{}}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s := strings.TrimSpace(strings.ToLower(sc.Text()))
		if s != "" && !strings.HasPrefix(s, "#") {
			d.data[s] = struct{}{}
		}
	}
	return d, sc.Err()
}

func (d *Dictionary) Contains(pwd string) bool {
	if d == nil {
		return false
	}
	_, ok := d.data[strings.ToLower(strings.TrimSpace(pwd))]
	return ok
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.data)
}
