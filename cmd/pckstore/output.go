package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/kjk/pckstore/pck"
	"github.com/tidwall/pretty"
	"github.com/toon-format/toon-go"
)

const (
	formatJSON = "json"
	formatToon = "toon"
)

// plain converts v to values made only of maps, lists, strings, numbers and bools
func plain(v any) (any, error) {
	d, err := pck.Encode(v, pck.EncodeOptions{Compact: true})
	if err != nil {
		return nil, err
	}
	var res any
	if err = json.Unmarshal(d, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// formatValue formats v as indented json (colored if color is set) or toon
func formatValue(v any, format string, sortKeys bool, color bool) ([]byte, error) {
	switch format {
	case formatJSON:
		d, err := pck.Encode(v, pck.EncodeOptions{SortKeys: sortKeys, Compact: true})
		if err != nil {
			return nil, err
		}
		d = pretty.PrettyOptions(d, &pretty.Options{Width: 80, Indent: "  ", SortKeys: sortKeys})
		if color {
			d = pretty.Color(d, nil)
		}
		return d, nil
	case formatToon:
		p, err := plain(v)
		if err != nil {
			return nil, err
		}
		d, err := toon.Marshal(p)
		if err != nil {
			return nil, err
		}
		return append(d, '\n'), nil
	}
	return nil, fmt.Errorf("unknown format '%s'", format)
}
