package notify

import (
	"context"
	"strings"

	"github.com/sw33tLie/fanmirror/pkg/whttp"
)

// BanNotifier tells a caching proxy in front of the archive to drop its
// copies of an artist or post page. A zero BaseURL disables it.
type BanNotifier struct {
	BaseURL string
	client  *whttp.Client
}

func NewBanNotifier(baseURL string, client *whttp.Client) *BanNotifier {
	return &BanNotifier{BaseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *BanNotifier) Enabled() bool {
	return b != nil && b.BaseURL != "" && b.client != nil
}

// BanArtist bans /{service}/user/{artist}.
func (b *BanNotifier) BanArtist(ctx context.Context, service, artistID string) error {
	return b.ban(ctx, "/"+service+"/user/"+artistID)
}

// BanPost bans /{service}/user/{artist}/post/{post}.
func (b *BanNotifier) BanPost(ctx context.Context, service, artistID, postID string) error {
	return b.ban(ctx, "/"+service+"/user/"+artistID+"/post/"+postID)
}

func (b *BanNotifier) ban(ctx context.Context, path string) error {
	if !b.Enabled() {
		return nil
	}
	_, err := b.client.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: "BAN",
		URL:    b.BaseURL + path,
	})
	return err
}
