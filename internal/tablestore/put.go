package tablestore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/arborfield/actorcore/internal/lock"
	"github.com/arborfield/actorcore/internal/wire"
	"github.com/google/uuid"
)

// PutInput is one row upsert or delete (spec §4.G's Put algorithm). Delete
// is signaled by leaving Data nil.
type PutInput struct {
	RowID    string
	Data     map[string]any
	Indexes  []IndexSpec
	Baseline map[string]string // caller-supplied baseline; loaded from storage if nil
}

// Put writes a row's base entry and reconciles its secondary-index entries
// against the previous baseline, following spec §4.G steps 1-5: fetch or
// accept a baseline, hash each index entry, diff against the baseline to
// find entries to write or delete, write the base row last so a crash
// mid-batch only ever leaves orphan index rows (corrected by a later
// Compact), and submit everything in one StoreBatch call.
func (s *Store) Put(ctx context.Context, in PutInput) error {
	token := lock.Token(uuid.NewString())
	if err := s.lock.BeginShared(ctx, token, nil); err != nil {
		return err
	}
	defer s.lock.EndShared(token)

	shard := s.shardFor(in.RowID)
	partition := s.partitionFor(shard)

	baseline := in.Baseline
	if baseline == nil {
		baseline = map[string]string{}
		if existing, found, err := s.Persist.Load(ctx, partition, baseSortKey(in.RowID), nil); err == nil && found {
			if row, ok := existing.(BaseRow); ok {
				for k, v := range row.Baseline {
					baseline[k] = v
				}
			}
		}
	}

	isDelete := in.Data == nil

	newBaseline := map[string]string{}
	var mutations []Mutation

	if !isDelete {
		for _, idx := range in.Indexes {
			entryKey, hash, err := hashIndexEntry(idx, in.Data)
			if err != nil {
				return err
			}
			newBaseline[entryKey] = hash
			if baseline[entryKey] == hash {
				continue // unchanged, nothing to write
			}
			keys, err := encodedIndexKeys(idx, in.Data)
			if err != nil {
				return err
			}
			rowIDJSON, err := json.Marshal(in.RowID)
			if err != nil {
				return err
			}
			mutations = append(mutations, Mutation{
				Partition: partition,
				Sort:      indexSortKey(idx.Name, keys, string(rowIDJSON), hash),
				Value:     in.RowID,
			})
		}
	}

	for entryKey, oldHash := range baseline {
		if newBaseline[entryKey] == oldHash {
			continue // retained unchanged above
		}
		idxName, keys, rowIDJSON := splitEntryKey(entryKey, in.RowID)
		mutations = append(mutations, Mutation{
			Partition: partition,
			Sort:      indexSortKey(idxName, keys, rowIDJSON, oldHash),
			Delete:    true,
		})
	}

	if isDelete {
		mutations = append(mutations, Mutation{
			Partition: partition,
			Sort:      baseSortKey(in.RowID),
			Delete:    true,
		})
	} else {
		mutations = append(mutations, Mutation{
			Partition: partition,
			Sort:      baseSortKey(in.RowID),
			Value:     BaseRow{Data: in.Data, Baseline: newBaseline},
		})
	}

	if err := s.Persist.StoreBatch(ctx, mutations); err != nil {
		return fmt.Errorf("%w: %w", ErrTableError, err)
	}
	return nil
}

// encodedIndexKeys resolves an index's key fields from data, in order, as
// sort-key segments.
func encodedIndexKeys(idx IndexSpec, data map[string]any) ([]string, error) {
	keys := make([]string, 0, len(idx.Keys))
	for _, field := range idx.Keys {
		seg, err := encodeKeySegment(resolveField(data, field))
		if err != nil {
			return nil, fmt.Errorf("tablestore: index %s field %s: %w", idx.Name, field, err)
		}
		keys = append(keys, seg)
	}
	return keys, nil
}

// hashIndexEntry returns a stable identity for one index entry (name plus
// key values, independent of the row's content) and its content hash (spec
// §4.G step 2: "SHA-1 over concatenated keys with separator + serialized
// data"). The data is serialized as a CJ envelope, which carries no
// per-encode seed, so equal data always yields the same hash.
func hashIndexEntry(idx IndexSpec, data map[string]any) (entryKey, hash string, err error) {
	keys, err := encodedIndexKeys(idx, data)
	if err != nil {
		return "", "", err
	}
	var buf bytes.Buffer
	buf.WriteString(idx.Name)
	for _, k := range keys {
		buf.WriteByte(0x1f)
		buf.WriteString(k)
	}
	entryKey = buf.String()

	encoded, err := wire.EncodeEnvelope(data, wire.EnvelopeCJ, 0)
	if err != nil {
		return "", "", err
	}
	buf.Write(encoded)
	sum := sha1.Sum(buf.Bytes())
	return entryKey, hex.EncodeToString(sum[:]), nil
}

// splitEntryKey recovers an index sort key's name/keys from a baseline
// entryKey built by hashIndexEntry, for emitting the matching delete
// mutation.
func splitEntryKey(entryKey, rowID string) (name string, keys []string, rowIDJSON string) {
	parts := bytes.Split([]byte(entryKey), []byte{0x1f})
	name = string(parts[0])
	for _, p := range parts[1:] {
		keys = append(keys, string(p))
	}
	raw, _ := json.Marshal(rowID)
	return name, keys, string(raw)
}
