package prowlarr

import (
	"encoding/xml"
	"strconv"
)

// TorznabFeed is the root RSS element of a Torznab search response,
// ported directly from the teacher's internal/prowlarr/types.go.
type TorznabFeed struct {
	XMLName xml.Name       `xml:"rss"`
	Channel TorznabChannel `xml:"channel"`
}

type TorznabChannel struct {
	Title string        `xml:"title"`
	Items []TorznabItem `xml:"item"`
}

// TorznabItem is a single release in a Torznab response.
type TorznabItem struct {
	Title       string             `xml:"title"`
	GUID        string             `xml:"guid"`
	Link        string             `xml:"link"`
	Comments    string             `xml:"comments,omitempty"`
	PubDate     string             `xml:"pubDate"`
	Size        int64              `xml:"size"`
	Description string             `xml:"description,omitempty"`
	Enclosure   TorznabEnclosure   `xml:"enclosure"`
	Attributes  []TorznabAttribute `xml:"attr"`
}

type TorznabEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type TorznabAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// GetAttribute returns the value of a torznab:attr element by name.
func (item *TorznabItem) GetAttribute(name string) string {
	for _, attr := range item.Attributes {
		if attr.Name == name {
			return attr.Value
		}
	}
	return ""
}

// GetIntAttribute parses a torznab:attr element as an integer, falling
// back to defaultVal when the attribute is absent or unparseable.
func (item *TorznabItem) GetIntAttribute(name string, defaultVal int) int {
	val := item.GetAttribute(name)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// SearchRequest is the Torznab query built from an indexer.SearchRequest.
type SearchRequest struct {
	Query      string
	ImdbID     string
	TmdbID     int
	Categories []int
}
