package sink

import (
	"sort"

	"github.com/twiced-technology-gmbh/installwatch/internal/resource"
)

func sortByURL(rs []resource.Resource) {
	sort.Slice(rs, func(a, b int) bool { return rs[a].URL < rs[b].URL })
}
