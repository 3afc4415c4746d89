package pkg

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/domain"
)

// maxPage keeps (page-1)*limit inside int once the limit is capped.
const maxPage = math.MaxInt / 1000

// filterParam matches "filter[<column>]" query keys.
var filterParam = regexp.MustCompile(`^filter\[([^\[\]]+)\]$`)

// ParseListQuery reads list parameters from the query string:
// page, limit, skip, q, sort_by, sort_dir, date_from_ms, date_to_ms, and
// filter[<column>]. Malformed numeric values are ignored. A page below 1 is
// treated as 1 and a page above maxPage as maxPage; an absent page requests
// a plain, unpaginated list.
func ParseListQuery(c *gin.Context) domain.ListQuery {
	var q domain.ListQuery

	if raw, ok := c.GetQuery("page"); ok {
		if page, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			q.Page = min(max(page, 1), maxPage)
		}
	}
	if limit, ok := queryInt(c, "limit"); ok && limit > 0 {
		q.Limit = limit
	}
	if skip, ok := queryInt(c, "skip"); ok && skip > 0 {
		q.Skip = skip
	}

	q.Search = strings.TrimSpace(c.Query("q"))
	q.SortBy = strings.TrimSpace(c.Query("sort_by"))
	q.SortDir = strings.ToLower(strings.TrimSpace(c.Query("sort_dir")))

	if ms, err := strconv.ParseInt(strings.TrimSpace(c.Query("date_from_ms")), 10, 64); err == nil {
		q.DateFromMS = &ms
	}
	if ms, err := strconv.ParseInt(strings.TrimSpace(c.Query("date_to_ms")), 10, 64); err == nil {
		q.DateToMS = &ms
	}

	for key, values := range c.Request.URL.Query() {
		m := filterParam.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		nonEmpty := make([]string, 0, len(values))
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				nonEmpty = append(nonEmpty, v)
			}
		}
		if len(nonEmpty) == 0 {
			continue
		}
		if q.Filters == nil {
			q.Filters = make(map[string]any)
		}
		if len(nonEmpty) == 1 {
			q.Filters[m[1]] = nonEmpty[0]
		} else {
			q.Filters[m[1]] = nonEmpty
		}
	}
	return q
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	return n, err == nil
}
