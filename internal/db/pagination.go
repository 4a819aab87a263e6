package db

import (
	"github.com/openmeld/meld/internal/meld"
	"github.com/openmeld/meld/internal/models"
)

// validatePage checks page arguments and, once the total is known, that
// the requested page is not past the end of the result set.
func validatePage(page, pageSize, total int) (models.PageInfo, error) {
	if page < 1 {
		return models.PageInfo{}, meld.Errorf(meld.KindInvalidRequest, "page must be >= 1, got %d", page)
	}
	if pageSize < 1 {
		return models.PageInfo{}, meld.Errorf(meld.KindInvalidRequest, "page size must be > 0, got %d", pageSize)
	}
	info := models.NewPageInfo(page, pageSize, total)
	if page > info.NumPages {
		return models.PageInfo{}, meld.Errorf(meld.KindInvalidRequest,
			"page %d is past the end of the result set (%d pages)", page, info.NumPages)
	}
	return info, nil
}

// pageWindow converts 1-based page arguments to a LIMIT/OFFSET pair.
func pageWindow(page, pageSize int) (limit, offset int) {
	return pageSize, (page - 1) * pageSize
}
