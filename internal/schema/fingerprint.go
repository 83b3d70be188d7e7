package schema

import (
	"sort"

	"lukechampine.com/blake3"
)

// Fingerprint hashes the sorted (name, SDL) pairs of every subgraph, so
// byte-identical SDLs always produce an identical fingerprint. The
// gateway uses its hex form as the schema id in operation cache keys.
func Fingerprint(subGraphs []*SubGraph) [32]byte {
	names := make([]string, len(subGraphs))
	bySDL := make(map[string][]byte, len(subGraphs))
	for i, sg := range subGraphs {
		names[i] = sg.Name
		bySDL[sg.Name] = sg.SDL
	}
	sort.Strings(names)

	h := blake3.New(32, nil)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(bySDL[name])
		h.Write([]byte{0})
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
