package route

// Level is the station-service query param controlling metadata
// granularity.
type Level string

const (
	LevelNetwork  Level = "network"
	LevelStation  Level = "station"
	LevelChannel  Level = "channel"
	LevelResponse Level = "response"
)

// Reduce applies the station "level" reduction:
//   - level=network: keep only the first route per network.
//   - level=station: keep only the first route per network.station, then
//     regroup the survivors by network.
//   - anything else (channel, response, or unset): group by network with
//     no per-group reduction.
//
// "First" means first occurrence in the source routing-table order. The
// input table must already be demultiplexed.
func Reduce(demuxed Table, level Level) (*Grouped, error) {
	switch level {
	case LevelNetwork:
		return reduceFirstThenGroup(demuxed, KeyNetwork, KeyNetwork)
	case LevelStation:
		return reduceFirstThenGroup(demuxed, KeyNetworkStation, KeyNetwork)
	default:
		return GroupBy(demuxed, KeyNetwork)
	}
}

// reduceFirstThenGroup keeps the first route per firstKey (in source
// order), then groups the survivors by regroupKey.
func reduceFirstThenGroup(demuxed Table, firstKey, regroupKey Key) (*Grouped, error) {
	seen := make(map[string]bool, len(demuxed))
	survivors := make(Table, 0, len(demuxed))
	for _, r := range demuxed {
		v, err := firstKey.valueOf(r.Epochs[0])
		if err != nil {
			return nil, err
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		survivors = append(survivors, r)
	}
	return GroupBy(survivors, regroupKey)
}
