package manifest

import (
	"bytes"
	"encoding/json"
)

// field is one key/value pair of a canonical JSON object. A nil Value
// means "absent" and the field is omitted entirely, matching §4.3's
// "fields whose value is null or absent are omitted".
type field struct {
	key   string
	value json.RawMessage
}

// buildObject assembles fields, in the given order, into a compact
// JSON object, skipping any field whose value is nil.
func buildObject(fields []field) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(f.key)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(f.value)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// buildArray assembles a compact JSON array from already-encoded
// elements.
func buildArray(elems []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// raw marshals v with the standard library, for scalar/slice-of-string
// values whose internal ordering is not itself in question.
func raw(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// Only called with types that always marshal successfully
		// (strings, bools, int64, []string).
		panic(err)
	}
	return b
}

// strField returns a field whose value is omitted when s is empty,
// matching the manifest's `omitempty` optional string fields.
func strField(key, s string) field {
	if s == "" {
		return field{key, nil}
	}
	return field{key, raw(s)}
}

// strSliceField returns a field whose value is omitted when ss is
// empty.
func strSliceField(key string, ss []string) field {
	if len(ss) == 0 {
		return field{key, nil}
	}
	return field{key, raw(ss)}
}

func canonicalFileAction(fa FileAction) json.RawMessage {
	return buildObject([]field{
		{"path", raw(fa.Path)},
		{"action", raw(string(fa.Action))},
		strField("addFile", fa.AddFile),
		strField("patchFile", fa.PatchFile),
		strField("sourceHash", fa.SourceHash),
		strField("targetHash", fa.TargetHash),
		strField("packageFileHash", fa.PackageFileHash),
	})
}

func canonicalFiles(files []FileAction) json.RawMessage {
	elems := make([]json.RawMessage, len(files))
	for i, fa := range files {
		elems[i] = canonicalFileAction(fa)
	}
	return buildArray(elems)
}

// Canonicalize produces the deterministic byte sequence that is signed
// and verified for m (§4.3): Signature cleared, fields emitted in
// schema-declared order with absent/empty optional fields omitted,
// 2-space indented, LF-only, UTF-8, no BOM. The same function is used
// by the package builder (signing) and the package applier
// (verifying), so the two can never disagree about what bytes a
// manifest signs. The Signature field is cleared on every call, so the
// same bytes come out whether m is about to be signed or is being
// verified against its own embedded signature.
func Canonicalize(m Manifest) ([]byte, error) {
	m.Signature = "" // always cleared/absent for the signed representation

	compact := buildObject([]field{
		{"versionId", raw(m.VersionId)},
		{"version", raw(m.Version)},
		{"fromVersionId", raw(m.FromVersionId)},
		strField("releaseName", m.ReleaseName),
		strSliceField("changes", m.Changes),
		{"files", canonicalFiles(m.Files)},
		{"restartRequired", raw(m.RestartRequired)},
		{"critical", raw(m.Critical)},
		strField("fallbackInstallerFile", m.FallbackInstallerFile),
		strField("fallbackInstallerHash", m.FallbackInstallerHash),
		strSliceField("fallbackInstallerArguments", m.FallbackInstallerArguments),
		strField("fullPackageFile", m.FullPackageFile),
		strField("fullPackageHash", m.FullPackageHash),
		// Signature intentionally absent: §4.3 step 1 clears it before
		// serialising.
	})

	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	// json.Indent never emits CR, so the result is already LF-only and
	// deterministic regardless of the host's line-ending convention.
	return out.Bytes(), nil
}

// Encode renders m as the meta.json bytes that ship inside a Package:
// the same schema-ordered fields Canonicalize produces, plus Signature
// itself appended last when present. The package builder calls this
// only after Sign has populated m.Signature from Canonicalize(m)'s
// output, so the two never drift apart.
func Encode(m Manifest) ([]byte, error) {
	compact := buildObject([]field{
		{"versionId", raw(m.VersionId)},
		{"version", raw(m.Version)},
		{"fromVersionId", raw(m.FromVersionId)},
		strField("releaseName", m.ReleaseName),
		strSliceField("changes", m.Changes),
		{"files", canonicalFiles(m.Files)},
		{"restartRequired", raw(m.RestartRequired)},
		{"critical", raw(m.Critical)},
		strField("fallbackInstallerFile", m.FallbackInstallerFile),
		strField("fallbackInstallerHash", m.FallbackInstallerHash),
		strSliceField("fallbackInstallerArguments", m.FallbackInstallerArguments),
		strField("fullPackageFile", m.FullPackageFile),
		strField("fullPackageHash", m.FullPackageHash),
		strField("signature", m.Signature),
	})

	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
