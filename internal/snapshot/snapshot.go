// Package snapshot implements the atomic, crash-safe persistence format for
// the index's entire state: {last_update_seq, tree}. The on-disk layout
// (fixed header, JSON body, CRC32 footer, temp-file-then-rename writes) is
// modeled on the teacher's segment file format.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"os"

	apperrors "github.com/texsearch/texsearch/pkg/errors"

	"github.com/texsearch/texsearch/internal/forest"
	"github.com/texsearch/texsearch/internal/metrictree"
)

// MagicBytes identifies a valid texsearch snapshot file.
const (
	MagicBytes    uint32 = 0x54584443 // "TXDC"
	FormatVersion uint32 = 1
	HeaderSize    int    = 24
	FooterSize    int    = 4
)

// header is the fixed 24-byte prefix of every snapshot file.
type header struct {
	Magic         uint32
	Version       uint32
	LastUpdateSeq int64
	BodySize      int64
}

// State is everything a snapshot round-trips.
type State struct {
	LastUpdateSeq int64
	Tree          *metrictree.Tree
}

// wireToken and wireIndexNode are the JSON-serializable mirrors of
// forest.Token/forest.IndexNode. Tokens recursively encode their Children
// forest; Suffixes is never stored, only recomputed on Load, since it is
// fully determined by Tokens.
type wireToken struct {
	Kind     uint8       `json:"k"`
	Label    string      `json:"l"`
	Children []wireToken `json:"c,omitempty"`
}

type wireIndexNode struct {
	DocID      string      `json:"d"`
	FragmentID string      `json:"f"`
	Tokens     []wireToken `json:"t"`
}

type wireNode struct {
	Pivot      wireIndexNode                    `json:"p"`
	Tombstoned bool                             `json:"x,omitempty"`
	Bucket     []wireIndexNode                  `json:"b,omitempty"`
	Children   [metrictree.BranchSize + 1]int32 `json:"c"`
}

type wireBody struct {
	Nodes []wireNode `json:"n"`
	Root  int32      `json:"r"`
}

func encodeForest(f *forest.Forest) []wireToken {
	tokens := forest.ToSlice(f)
	out := make([]wireToken, len(tokens))
	for i, t := range tokens {
		out[i] = wireToken{
			Kind:     uint8(t.Kind),
			Label:    t.Label,
			Children: encodeForest(t.Children),
		}
	}
	return out
}

func decodeForest(in []wireToken, interner *forest.Interner) *forest.Forest {
	tokens := make([]forest.Token, len(in))
	for i, wt := range in {
		switch forest.Kind(wt.Kind) {
		case forest.KindText:
			tokens[i] = forest.Text(wt.Label)
		default:
			tokens[i] = forest.Command(wt.Label, decodeForest(wt.Children, interner))
		}
	}
	return interner.Build(tokens)
}

func encodeIndexNode(n forest.IndexNode) wireIndexNode {
	return wireIndexNode{DocID: n.DocID, FragmentID: n.FragmentID, Tokens: encodeForest(n.Tokens)}
}

func decodeIndexNode(w wireIndexNode, interner *forest.Interner) forest.IndexNode {
	tokens := decodeForest(w.Tokens, interner)
	return forest.IndexNode{
		DocID:      w.DocID,
		FragmentID: w.FragmentID,
		Tokens:     tokens,
		Suffixes:   forest.Suffixes(tokens),
	}
}

// Save atomically writes st to path: the body is written to a sibling
// "<path>_tmp" file first and renamed into place only once fully flushed,
// so a crash mid-write never corrupts the existing snapshot.
func Save(path string, st State) error {
	nodes, root := st.Tree.Export()
	body := wireBody{Nodes: make([]wireNode, len(nodes)), Root: int32(root)}
	for i, n := range nodes {
		wn := wireNode{Pivot: encodeIndexNode(n.Pivot), Tombstoned: n.Tombstoned}
		wn.Bucket = make([]wireIndexNode, len(n.Bucket))
		for j, b := range n.Bucket {
			wn.Bucket[j] = encodeIndexNode(b)
		}
		for i2, c := range n.Children {
			wn.Children[i2] = int32(c)
		}
		body.Nodes[i] = wn
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return apperrors.Persistence("marshaling snapshot body: %v", err)
	}

	hdr := header{
		Magic:         MagicBytes,
		Version:       FormatVersion,
		LastUpdateSeq: st.LastUpdateSeq,
		BodySize:      int64(len(bodyBytes)),
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return apperrors.Persistence("encoding snapshot header: %v", err)
	}
	buf.Write(bodyBytes)
	checksum := crc32.ChecksumIEEE(bodyBytes)
	if err := binary.Write(&buf, binary.LittleEndian, checksum); err != nil {
		return apperrors.Persistence("encoding snapshot footer: %v", err)
	}

	tmpPath := path + "_tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.Persistence("creating snapshot temp file: %v", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return apperrors.Persistence("writing snapshot temp file: %v", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return apperrors.Persistence("syncing snapshot temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Persistence("closing snapshot temp file: %v", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperrors.Persistence("renaming snapshot into place: %v", err)
	}
	return nil
}

// Load reads and validates the snapshot at path, rebuilding its tree through
// a single shared forest.Interner so structurally identical forests across
// nodes are canonicalized exactly as they were when first indexed. A
// missing file is reported as a PERSISTENCE error like any other read
// failure; callers that want "init if missing" behavior check Exists first.
func Load(path string) (State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return State{}, apperrors.Persistence("reading snapshot file: %v", err)
	}
	if len(raw) < HeaderSize+FooterSize {
		return State{}, apperrors.Persistence("snapshot file %q is truncated", path)
	}

	var hdr header
	if err := binary.Read(bytes.NewReader(raw[:HeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return State{}, apperrors.Persistence("decoding snapshot header: %v", err)
	}
	if hdr.Magic != MagicBytes {
		return State{}, apperrors.Persistence("snapshot file %q has bad magic bytes %x", path, hdr.Magic)
	}
	if hdr.Version != FormatVersion {
		return State{}, apperrors.Persistence("snapshot file %q has unsupported version %d", path, hdr.Version)
	}

	bodyStart := HeaderSize
	bodyEnd := bodyStart + int(hdr.BodySize)
	if bodyEnd+FooterSize > len(raw) {
		return State{}, apperrors.Persistence("snapshot file %q body size %d exceeds file length", path, hdr.BodySize)
	}
	bodyBytes := raw[bodyStart:bodyEnd]

	var wantChecksum uint32
	if err := binary.Read(bytes.NewReader(raw[bodyEnd:bodyEnd+FooterSize]), binary.LittleEndian, &wantChecksum); err != nil {
		return State{}, apperrors.Persistence("decoding snapshot footer: %v", err)
	}
	if got := crc32.ChecksumIEEE(bodyBytes); got != wantChecksum {
		return State{}, apperrors.Persistence("snapshot file %q failed checksum validation", path)
	}

	var body wireBody
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return State{}, apperrors.Persistence("parsing snapshot body: %v", err)
	}

	interner := forest.NewInterner()
	nodes := make([]metrictree.NodeState, len(body.Nodes))
	for i, wn := range body.Nodes {
		ns := metrictree.NodeState{
			Pivot:      decodeIndexNode(wn.Pivot, interner),
			Tombstoned: wn.Tombstoned,
		}
		ns.Bucket = make([]forest.IndexNode, len(wn.Bucket))
		for j, wb := range wn.Bucket {
			ns.Bucket[j] = decodeIndexNode(wb, interner)
		}
		for i2, c := range wn.Children {
			ns.Children[i2] = int(c)
		}
		nodes[i] = ns
	}

	return State{
		LastUpdateSeq: hdr.LastUpdateSeq,
		Tree:          metrictree.Import(nodes, int(body.Root)),
	}, nil
}

// Exists reports whether a snapshot file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
