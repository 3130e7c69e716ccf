package rule

// Priority formula constants (§4.1). A and B must satisfy A > B > 1 so
// relevance dominates accuracy at equal location; locationWeight must keep
// content > full_path > file_name at equal relevance and accuracy, and
// must dwarf any plausible len(pattern)+A*3+B*3 sum so location always
// wins first.
const (
	relevanceWeight = 1000 // A
	accuracyWeight  = 100  // B

	locationWeightContent  = 1_000_000
	locationWeightFullPath = 500_000
	locationWeightFileName = 0
)

func locationWeight(loc SearchLocation) int {
	switch loc {
	case SearchFileContent:
		return locationWeightContent
	case SearchFullPath:
		return locationWeightFullPath
	case SearchFileName:
		return locationWeightFileName
	default:
		return 0
	}
}

// priority computes the derived priority attribute (§3, §4.1). Higher runs
// first. It is a pure function of location, relevance, accuracy and the raw
// pattern text, so it is stable across runs given the same descriptors.
func priority(loc SearchLocation, relevance, accuracy, patternLen int) int {
	return locationWeight(loc) + relevanceWeight*relevance + accuracyWeight*accuracy + patternLen
}
