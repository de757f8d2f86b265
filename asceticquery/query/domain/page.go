package query

// Page is one slice of a larger result set.
type Page[T any] struct {
	Content       []T
	TotalElements int64
	PageIndex     int
	PageSize      int
}

func (p Page[T]) TotalPages() int {
	return PageCount(p.TotalElements, p.PageSize)
}

func (p Page[T]) HasNext() bool {
	return p.PageIndex+1 < p.TotalPages()
}

// PageCount is ceil(total / size).
func PageCount(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

func MapPage[T, U any](p Page[T], fn func(T) (U, error)) (Page[U], error) {
	content := make([]U, 0, len(p.Content))
	for _, item := range p.Content {
		u, err := fn(item)
		if err != nil {
			return Page[U]{}, err
		}
		content = append(content, u)
	}
	return Page[U]{
		Content:       content,
		TotalElements: p.TotalElements,
		PageIndex:     p.PageIndex,
		PageSize:      p.PageSize,
	}, nil
}
