package inference

import "github.com/shandley/crucible/internal/dateformat"

func parsesDate(v string) bool {
	return dateformat.IsDate(v)
}

func parsesDateTime(v string) bool {
	return dateformat.IsDateTime(v)
}
