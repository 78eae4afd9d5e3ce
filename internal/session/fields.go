package session

import "encoding/json"

// FieldKind tags the variant stored under a session field key. The taxonomy is
// deliberately small: string, integer, sequence-of-string, JSON-encoded blob.
type FieldKind byte

const (
	KindString FieldKind = iota
	KindInt
	KindStringList
	KindBlob
)

type FieldValue struct {
	Kind FieldKind
	Str  string
	Int  int64
	List []string
	Blob []byte
}

func StringField(v string) FieldValue {
	return FieldValue{Kind: KindString, Str: v}
}

func IntField(v int64) FieldValue {
	return FieldValue{Kind: KindInt, Int: v}
}

func StringListField(v []string) FieldValue {
	return FieldValue{Kind: KindStringList, List: append([]string{}, v...)}
}

func BlobField(v []byte) FieldValue {
	return FieldValue{Kind: KindBlob, Blob: append([]byte(nil), v...)}
}

// JSONField serializes v on write; the caller decodes on read.
func JSONField(v interface{}) FieldValue {
	data, err := json.Marshal(v)
	if err != nil {
		return BlobField(nil)
	}
	return FieldValue{Kind: KindBlob, Blob: data}
}

// copy returns a value-semantics snapshot; reads never alias store memory.
func (v FieldValue) copy() FieldValue {
	out := v
	if v.List != nil {
		out.List = append([]string(nil), v.List...)
	}
	if v.Blob != nil {
		out.Blob = append([]byte(nil), v.Blob...)
	}
	return out
}
