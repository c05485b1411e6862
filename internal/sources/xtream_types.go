package sources

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexString accepts a JSON string, number or null. Xtream panels disagree
// on whether ids and timestamps are quoted.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	case b[0] == '[' || b[0] == '{' || bytes.Equal(b, []byte("false")) || bytes.Equal(b, []byte("true")):
		*f = ""
	default:
		*f = flexString(b)
	}
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// Int parses the value as an integer, returning zero when it is not one.
func (f flexString) Int() int64 {
	s := string(f)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if x, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(x)
	}
	return 0
}

// Float parses the value as a float, returning zero when it is not one.
func (f flexString) Float() float64 {
	x, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return 0
	}
	return x
}

// flexStrings accepts either a string or an array of strings.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var raw []flexString
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make([]string, 0, len(raw))
		for _, s := range raw {
			if s != "" {
				out = append(out, s.String())
			}
		}
		*f = out
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = nil
	} else {
		*f = flexStrings{s.String()}
	}
	return nil
}

func (f flexStrings) first() string {
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

type userInfoRaw struct {
	UserInfo struct {
		Auth   flexString `json:"auth"`
		Status string     `json:"status"`
	} `json:"user_info"`
}

type categoryRaw struct {
	CategoryID   flexString `json:"category_id"`
	CategoryName string     `json:"category_name"`
	ParentID     flexString `json:"parent_id"`
}

type liveStreamRaw struct {
	Num          flexString `json:"num"`
	Name         string     `json:"name"`
	StreamID     flexString `json:"stream_id"`
	StreamIcon   string     `json:"stream_icon"`
	EpgChannelID flexString `json:"epg_channel_id"`
	Added        flexString `json:"added"`
	CategoryID   flexString `json:"category_id"`
}

type vodStreamRaw struct {
	StreamID     flexString `json:"stream_id"`
	Name         string     `json:"name"`
	StreamIcon   string     `json:"stream_icon"`
	Rating       flexString `json:"rating"`
	Rating5Based flexString `json:"rating_5based"`
	Added        flexString `json:"added"`
	CategoryID   flexString `json:"category_id"`
	Container    string     `json:"container_extension"`
	Year         flexString `json:"year"`
	Genre        string     `json:"genre"`
	Plot         string     `json:"plot"`
	Cast         string     `json:"cast"`
	Director     string     `json:"director"`
}

type seriesRaw struct {
	SeriesID     flexString  `json:"series_id"`
	Name         string      `json:"name"`
	Cover        string      `json:"cover"`
	Plot         string      `json:"plot"`
	Cast         string      `json:"cast"`
	Director     string      `json:"director"`
	Genre        string      `json:"genre"`
	ReleaseDate  flexString  `json:"releaseDate"`
	LastModified flexString  `json:"last_modified"`
	Rating       flexString  `json:"rating"`
	Rating5Based flexString  `json:"rating_5based"`
	Backdrop     flexStrings `json:"backdrop_path"`
	CategoryID   flexString  `json:"category_id"`
}

type seriesInfoRaw struct {
	Seasons  []seasonRaw     `json:"seasons"`
	Info     seriesRaw       `json:"info"`
	Episodes json.RawMessage `json:"episodes"`
}

type seasonRaw struct {
	SeasonNumber flexString `json:"season_number"`
	Name         string     `json:"name"`
	Overview     string     `json:"overview"`
	AirDate      string     `json:"air_date"`
}

type episodeRaw struct {
	ID         flexString `json:"id"`
	EpisodeNum flexString `json:"episode_num"`
	Title      string     `json:"title"`
	Container  string     `json:"container_extension"`
	Season     flexString `json:"season"`
	Info       struct {
		DurationSecs flexString `json:"duration_secs"`
		Plot         string     `json:"plot"`
	} `json:"info"`
}

// UnmarshalJSON tolerates panels that send "info" as an empty array.
func (e *episodeRaw) UnmarshalJSON(b []byte) error {
	type plain episodeRaw
	var aux struct {
		plain
		Info json.RawMessage `json:"info"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = episodeRaw(aux.plain)
	if info := bytes.TrimSpace(aux.Info); len(info) > 0 && info[0] == '{' {
		if err := json.Unmarshal(info, &e.Info); err != nil {
			return err
		}
	}
	return nil
}

// decodeEpisodes reads the "episodes" member, which is either an object keyed
// by season number or an array of per-season arrays.
func decodeEpisodes(raw json.RawMessage) ([]episodeRaw, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var groups [][]episodeRaw
	if raw[0] == '{' {
		var bySeason map[string][]episodeRaw
		if err := json.Unmarshal(raw, &bySeason); err != nil {
			return nil, err
		}
		for season, eps := range bySeason {
			for i := range eps {
				if eps[i].Season == "" {
					eps[i].Season = flexString(season)
				}
			}
			groups = append(groups, eps)
		}
	} else if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, err
	}

	var out []episodeRaw
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}
