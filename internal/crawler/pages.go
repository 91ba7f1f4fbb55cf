package crawler

import "sort"

// SortByRank orders pages by rank descending, breaking ties by URL ascending.
func SortByRank(pages []PageRecord) {
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].Rank != pages[j].Rank {
			return pages[i].Rank > pages[j].Rank
		}
		return pages[i].URL < pages[j].URL
	})
}

// ClonePage returns a copy of p that shares no slices with it.
func ClonePage(p PageRecord) PageRecord {
	if p.Links != nil {
		p.Links = append([]string(nil), p.Links...)
	}
	return p
}
