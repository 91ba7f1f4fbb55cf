// Package rank scores crawled pages.
package rank

// OutDegree scores a page by the number of links it carries, duplicates
// included. The score is frozen at crawl time.
func OutDegree(links []string) int {
	return len(links)
}
