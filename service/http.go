package service

// PageQueryParam describes one catalog page to request and the rows to keep from it
type PageQueryParam struct {
	Limit            int
	Page             int
	FirstRowToSelect int
	LastRowToSelect  int
}

// ComputePagesToQuery maps a client page request onto the catalog's own paging
// (pages are 0-based, the client offset is clientPage*clientLimit)
func ComputePagesToQuery(clientPage, clientLimit, catalogLimit int) []PageQueryParam {
	offset := clientPage * clientLimit
	end := offset + clientLimit - 1

	var params []PageQueryParam
	for page := offset / catalogLimit; page <= end/catalogLimit; page++ {
		first := offset - page*catalogLimit
		if first < 0 {
			first = 0
		}
		last := end - page*catalogLimit
		if last > catalogLimit-1 {
			last = catalogLimit - 1
		}
		params = append(params, PageQueryParam{
			Limit:            catalogLimit,
			Page:             page,
			FirstRowToSelect: first,
			LastRowToSelect:  last,
		})
	}
	return params
}
