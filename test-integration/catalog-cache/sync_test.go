package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/catalog-cache/test-integration/catalog-cache/helpers"
)

type itemsPage struct {
	Items []struct {
		ExternalID string  `json:"external_id"`
		Name       string  `json:"name"`
		CategoryID string  `json:"category_id"`
		Year       int     `json:"year"`
		Rating     float64 `json:"rating"`
	} `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

func (p itemsPage) ids() []string {
	ids := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		ids = append(ids, it.ExternalID)
	}
	return ids
}

var _ = Describe("Catalog sync", Label("sync"), func() {
	const (
		username = "alice"
		password = "s3cret"
		home     = "/api/v1/profiles/" + helpers.HomeProfile
	)

	var (
		tempDir string
		panel   *helpers.MockPanel
		server  *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("catalog-cache-integration-")

		panel = helpers.NewMockPanelBuilder(username, password).
			WithCategory("live", "1", "News").
			WithCategory("vod", "10", "Action").
			WithCategory("vod", "11", "Drama").
			WithCategory("series", "20", "Crime").
			WithChannels(
				helpers.Channel{ID: 100, Name: "World News", Category: "1"},
			).
			WithMovies(
				helpers.Movie{ID: 1, Name: "The Matrix", Category: "10", Genre: "Sci-Fi", Year: 1999, Rating: 8.7, Added: 1700000000},
				helpers.Movie{ID: 2, Name: "Heat", Category: "10", Genre: "Crime", Year: 1995, Rating: 8.3, Added: 1700000100},
				helpers.Movie{ID: 3, Name: "Amelie", Category: "11", Genre: "Romance", Year: 2001, Rating: 8.3, Added: 1700000200},
			).
			WithSeries(
				helpers.Series{ID: 500, Name: "The Wire", Category: "20", LastModified: 1700000300,
					Episodes: map[int][]string{1: {"The Target", "The Detail"}, 2: {"Ebb Tide"}}},
			).
			Build()

		server = helpers.NewServerTestHelper(ctx, tempDir, panel, username, password)
		server.StartServer()
		server.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		if server != nil {
			Expect(server.StopServer()).To(Succeed())
		}
		if panel != nil {
			panel.Close()
		}
		cleanupTempDir(tempDir)
	})

	Context("with valid credentials", func() {
		It("should cache the whole catalog on a full sync", func() {
			status := server.RunSync(helpers.HomeProfile, true, "completed")
			Expect(status.Errors).To(BeEmpty())
			Expect(status.ItemsProcessed).To(Equal(5))

			code, body := server.Get(home + "/movies/items")
			Expect(code).To(Equal(http.StatusOK))
			var movies itemsPage
			helpers.Data(body, &movies)
			Expect(movies.Total).To(Equal(3))
			Expect(movies.ids()).To(ConsistOf("1", "2", "3"))

			code, body = server.Get(home + "/movies/items?category=10&sort=year&order=desc")
			Expect(code).To(Equal(http.StatusOK))
			var action itemsPage
			helpers.Data(body, &action)
			Expect(action.ids()).To(Equal([]string{"1", "2"}))

			code, body = server.Get(home + "/channels/items")
			Expect(code).To(Equal(http.StatusOK))
			var channels itemsPage
			helpers.Data(body, &channels)
			Expect(channels.Total).To(Equal(1))
		})

		It("should search cached items by name", func() {
			server.RunSync(helpers.HomeProfile, true, "completed")

			code, body := server.Get(home + "/movies/search?q=matr")
			Expect(code).To(Equal(http.StatusOK))
			var page itemsPage
			helpers.Data(body, &page)
			Expect(page.ids()).To(Equal([]string{"1"}))
			Expect(page.Items[0].Name).To(Equal("The Matrix"))
		})

		It("should list the categories of a content type", func() {
			server.RunSync(helpers.HomeProfile, true, "completed")

			code, body := server.Get(home + "/movies/categories")
			Expect(code).To(Equal(http.StatusOK))
			var resp struct {
				Categories []struct {
					ExternalID string `json:"external_id"`
					Name       string `json:"name"`
				} `json:"categories"`
			}
			helpers.Data(body, &resp)
			Expect(resp.Categories).To(HaveLen(2))
		})

		It("should fetch series details on first access and reuse them", func() {
			server.RunSync(helpers.HomeProfile, true, "completed")
			Expect(panel.SeriesInfoRequests()).To(Equal(0))

			var detail struct {
				Name    string `json:"name"`
				Seasons []struct {
					Number   int `json:"number"`
					Episodes []struct {
						Title string `json:"title"`
					} `json:"episodes"`
				} `json:"seasons"`
			}
			code, body := server.Get(home + "/series/items/500")
			Expect(code).To(Equal(http.StatusOK), string(body))
			helpers.Data(body, &detail)
			Expect(detail.Name).To(Equal("The Wire"))
			Expect(detail.Seasons).To(HaveLen(2))
			Expect(panel.SeriesInfoRequests()).To(Equal(1))

			code, _ = server.Get(home + "/series/items/500")
			Expect(code).To(Equal(http.StatusOK))
			Expect(panel.SeriesInfoRequests()).To(Equal(1))
		})

		It("should answer not found for items outside the cache", func() {
			server.RunSync(helpers.HomeProfile, true, "completed")

			code, _ := server.Get(home + "/movies/items/999")
			Expect(code).To(Equal(http.StatusNotFound))
		})

		It("should drop withdrawn items on a full sync", func() {
			server.RunSync(helpers.HomeProfile, true, "completed")
			panel.RemoveMovie(2)
			server.RunSync(helpers.HomeProfile, true, "completed")

			_, body := server.Get(home + "/movies/items")
			var page itemsPage
			helpers.Data(body, &page)
			Expect(page.ids()).To(ConsistOf("1", "3"))
		})

		It("should only add newer items on an incremental sync", func() {
			server.RunSync(helpers.HomeProfile, true, "completed")
			panel.RemoveMovie(2)
			panel.AddMovie(helpers.Movie{ID: 4, Name: "Dune", Category: "10", Genre: "Sci-Fi", Year: 2021, Rating: 8.0, Added: 1800000000})

			status := server.RunSync(helpers.HomeProfile, false, "completed")
			Expect(status.ItemsProcessed).To(Equal(1))

			_, body := server.Get(home + "/movies/items")
			var page itemsPage
			helpers.Data(body, &page)
			Expect(page.ids()).To(ConsistOf("1", "2", "3", "4"))
		})
	})

	Context("with rejected credentials", func() {
		It("should end the run in error", func() {
			status := server.RunSync(helpers.BrokenProfile, true, "error")
			Expect(status.Errors).NotTo(BeEmpty())
			Expect(status.Errors[len(status.Errors)-1]).To(ContainSubstring("remote authentication failed"))

			code, body := server.Get("/api/v1/profiles/" + helpers.BrokenProfile + "/movies/items")
			Expect(code).To(Equal(http.StatusOK))
			var page itemsPage
			helpers.Data(body, &page)
			Expect(page.Total).To(BeZero())
		})
	})

	Context("settings", func() {
		It("should reject intervals below the minimum", func() {
			code, body := server.Put(home+"/settings", map[string]any{"sync_interval_hours": 2})
			Expect(code).To(Equal(http.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("invalid_settings"))
		})

		It("should store valid settings", func() {
			code, body := server.Put(home+"/settings", map[string]any{"sync_interval_hours": 12, "wifi_only": true})
			Expect(code).To(Equal(http.StatusOK), string(body))

			_, body = server.Get(home + "/settings")
			var settings struct {
				SyncIntervalHours uint `json:"sync_interval_hours"`
				WifiOnly          bool `json:"wifi_only"`
			}
			helpers.Data(body, &settings)
			Expect(settings.SyncIntervalHours).To(Equal(uint(12)))
			Expect(settings.WifiOnly).To(BeTrue())
		})
	})
})
