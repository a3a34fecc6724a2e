// Package debrid contains the debrid provider contract and its
// implementations. The orchestrator and the resolution cache depend only on
// the Provider interface, never on a provider's wire format.
package debrid

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/cehbz/torrentname"

	"github.com/amaumene/gocomet/internal/database"
	"github.com/amaumene/gocomet/internal/models"
)

// Availability is the outcome of a cache check for one info hash.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityReady
	AvailabilityUnavailable
)

func (a Availability) String() string {
	switch a {
	case AvailabilityReady:
		return "ready"
	case AvailabilityUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// File is one downloadable file inside a resolved torrent.
type File struct {
	Name string
	Size int64
	Link string
}

// FileSelector picks the file to play out of a torrent's file list.
type FileSelector func(files []File) (File, bool)

// Provider is one debrid service. CheckAvailability accepts a batch of hashes
// since every supported backend exposes a bulk endpoint. AddAndResolve adds
// the magnet to the account and walks it through to a direct link.
type Provider interface {
	Name() string
	CheckAvailability(ctx context.Context, infoHashes ...string) (map[string]Availability, error)
	AddAndResolve(ctx context.Context, infoHash string, selector FileSelector) (models.ResolutionResult, error)
}

// MagnetDeleter is implemented by providers that can remove magnets the
// resolution pipeline added; the cleanup job uses it.
type MagnetDeleter interface {
	DeleteMagnet(ctx context.Context, providerMagnetID string) error
}

// DatabaseSetter is implemented by providers that record added magnets for
// later cleanup.
type DatabaseSetter interface {
	SetDatabase(db database.Database)
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".ts": true,
}

func isVideoFile(name string) bool {
	name = strings.ToLower(name)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return videoExtensions[name[idx:]]
	}
	return false
}

// SelectLargestVideo picks the biggest video file; the right choice for
// movies, where the feature dwarfs samples and extras.
func SelectLargestVideo() FileSelector {
	return func(files []File) (File, bool) {
		var best File
		found := false
		for _, f := range files {
			if !isVideoFile(f.Name) {
				continue
			}
			if !found || f.Size > best.Size {
				best = f
				found = true
			}
		}
		return best, found
	}
}

// SelectEpisode picks the video file whose parsed name matches the wanted
// season and episode, falling back to the largest video file when the torrent
// is a single episode with an unparseable name.
func SelectEpisode(season, episode int) FileSelector {
	return func(files []File) (File, bool) {
		for _, f := range files {
			if !isVideoFile(f.Name) {
				continue
			}
			parsed := torrentname.Parse(f.Name)
			if parsed != nil && parsed.Season == season && parsed.Episode == episode {
				return f, true
			}
		}
		return SelectLargestVideo()(files)
	}
}

// SelectorFor returns the file selector matching a query's shape.
func SelectorFor(season, episode int) FileSelector {
	if season > 0 && episode > 0 {
		return SelectEpisode(season, episode)
	}
	return SelectLargestVideo()
}

// AccountFingerprint derives a short stable identifier from an API key for
// use inside resolution cache keys, so keys never hold raw credentials.
func AccountFingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:12]
}

// MagnetURL builds a magnet URI for an info hash.
func MagnetURL(infoHash, displayName string) string {
	return fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s", infoHash, url.QueryEscape(displayName))
}
