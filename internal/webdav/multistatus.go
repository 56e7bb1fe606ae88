package webdav

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Entry is one resource from a PROPFIND multistatus response.
type Entry struct {
	Href         string
	Name         string
	Collection   bool
	Size         int64
	LastModified string
}

type multistatus struct {
	Responses []struct {
		Href     string `xml:"href"`
		Propstat []struct {
			Prop struct {
				DisplayName   string `xml:"displayname"`
				ContentLength string `xml:"getcontentlength"`
				LastModified  string `xml:"getlastmodified"`
				ResourceType  struct {
					Collection *struct{} `xml:"collection"`
				} `xml:"resourcetype"`
			} `xml:"prop"`
			Status string `xml:"status"`
		} `xml:"propstat"`
	} `xml:"response"`
}

func parseMultistatus(data []byte) ([]Entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("parse multistatus: %w", err)
	}

	entries := make([]Entry, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		e := Entry{Href: r.Href}
		for _, ps := range r.Propstat {
			if ps.Status != "" && !strings.Contains(ps.Status, " 200 ") {
				continue
			}
			if ps.Prop.DisplayName != "" {
				e.Name = ps.Prop.DisplayName
			}
			if ps.Prop.ResourceType.Collection != nil {
				e.Collection = true
			}
			if ps.Prop.ContentLength != "" {
				e.Size, _ = strconv.ParseInt(ps.Prop.ContentLength, 10, 64)
			}
			if ps.Prop.LastModified != "" {
				e.LastModified = ps.Prop.LastModified
			}
		}
		if e.Name == "" {
			e.Name = hrefName(r.Href)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func hrefName(href string) string {
	p := strings.TrimSuffix(href, "/")
	if u, err := url.PathUnescape(p); err == nil {
		p = u
	}
	return path.Base(p)
}
