package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const richArticle = `<html><body>
<article>
  <div data-testid="User-Name">
    <span>Budi Santoso</span>
    <span>@budi_s</span>
  </div>
  <svg data-testid="icon-verified"></svg>
  <a href="/budi_s/status/1876543210987654321">
    <time datetime="2026-08-20T10:00:00Z">Aug 20</time>
  </a>
  <div data-testid="tweetText">Program MBG bagus untuk anak sekolah</div>
  <button data-testid="reply" aria-label="12 Replies"><span>12</span></button>
  <button data-testid="retweet" aria-label="3 reposts"><span>3</span></button>
  <button data-testid="like" aria-label="1.2K Likes"><span>1.2K</span></button>
</article>
</body></html>`

// degradedArticle carries none of the primary hooks, so every field has to
// come from a fallback strategy.
const degradedArticle = `<html><body>
<article>
  <a href="/citra_l/status/1900000000000000001"><img alt="Citra Lestari"></a>
  <div lang="id">Menu makan bergizi hari ini kurang variasi</div>
  <div aria-label="5 replies"></div>
  <div aria-label="2 reposts"></div>
  <div aria-label="40 likes"></div>
</article>
</body></html>`

const idlessArticle = `<html><body>
<article>
  <div lang="id">Dapur MBG di kota kami sudah mulai beroperasi</div>
</article>
</body></html>`

func TestExtractItemsPrimaryStrategies(t *testing.T) {
	t.Parallel()

	items, err := extractItems(richArticle)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "1876543210987654321", item.ExternalID)
	assert.Equal(t, "Program MBG bagus untuk anak sekolah", item.Text)
	assert.Equal(t, "Budi Santoso", item.AuthorName)
	assert.Equal(t, "budi_s", item.AuthorHandle)
	assert.True(t, item.Verified)
	assert.Equal(t, 12, item.ReplyCount)
	assert.Equal(t, 3, item.ShareCount)
	assert.Equal(t, 1200, item.LikeCount)
	assert.Equal(t, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), item.PublishedAt.UTC())
}

func TestExtractItemsFallbackStrategies(t *testing.T) {
	t.Parallel()

	items, err := extractItems(degradedArticle)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "1900000000000000001", item.ExternalID)
	assert.Equal(t, "Menu makan bergizi hari ini kurang variasi", item.Text)
	assert.Equal(t, "Citra Lestari", item.AuthorName)
	assert.Equal(t, "citra_l", item.AuthorHandle)
	assert.False(t, item.Verified)
	assert.Equal(t, 5, item.ReplyCount)
	assert.Equal(t, 2, item.ShareCount)
	assert.Equal(t, 40, item.LikeCount)
}

func TestExtractItemsMissingIdentity(t *testing.T) {
	t.Parallel()

	items, err := extractItems(idlessArticle)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].ExternalID)
	assert.NotEmpty(t, items[0].Text)
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"7", 7},
		{"1,234", 1234},
		{"1.2K", 1200},
		{"3k", 3000},
		{"2M", 2_000_000},
		{"garbage", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseCount(tc.in), "input %q", tc.in)
	}
}

func TestXpathLiteral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `'Log in'`, xpathLiteral("Log in"))
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
}
