// Package utils holds small helpers shared by the HTTP and service layers.
package utils

import "strconv"

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and page_size values. Malformed values are treated as
// missing; see Clamp for the bounds.
func ParsePage(rawPage, rawSize string, defSize, maxSize int) Page {
	return Page{Number: atoiDefault(rawPage, 1), Size: atoiDefault(rawSize, defSize)}.Clamp(defSize, maxSize)
}

// Clamp returns p with Number >= 1 and Size in [1, maxSize]. A Size < 1 takes
// defSize; maxSize <= 0 disables the upper bound.
func (p Page) Clamp(defSize, maxSize int) Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defSize
	}
	if p.Size < 1 {
		p.Size = 1
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many pages of p.Size cover total rows.
func (p Page) TotalPages(total int64) int {
	if p.Size < 1 || total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
