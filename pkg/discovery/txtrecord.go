package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/indiproto/indi-go/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// ServerInfo is the content of an INDI server's TXT records.
type ServerInfo struct {
	Version    string
	TXTVersion string
}

// EncodeServerTXT creates TXT records for an INDI server.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	if info.TXTVersion != "" {
		txt[TXTKeyTXTVersion] = info.TXTVersion
	}
	return txt
}

// DecodeServerTXT parses TXT records of an INDI server. All keys are
// optional; a version that cannot be parsed or does not match the
// client's major version is an error.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{
		Version:    txt[TXTKeyVersion],
		TXTVersion: txt[TXTKeyTXTVersion],
	}
	if info.Version == "" {
		return info, nil
	}
	v, err := version.Parse(info.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyVersion, info.Version)
	}
	if !v.Compatible(version.MustParse(version.Current)) {
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, info.Version)
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
// Keys are case-insensitive (RFC 6763) and stored in lower case.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		key := strings.ToLower(parts[0])
		if key == "" {
			continue
		}
		if len(parts) == 2 {
			txt[key] = parts[1]
		} else {
			// Key without value (boolean flag)
			txt[key] = ""
		}
	}
	return txt
}
