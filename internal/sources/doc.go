// Package sources provides the contract for fetching catalog data from a
// remote provider and its Xtream-Codes implementation.
//
// Architecture:
//   - Fetcher: fetches categories, pages of catalog items and series details
//   - XtreamFetcher: talks to an Xtream-Codes player_api.php endpoint
//
// Xtream providers have no native paging, so XtreamFetcher pages by category:
// page i holds the streams of the i-th category returned by FetchCategories.
// Incremental requests drop streams whose "added" timestamp is not newer than
// the cursor.
//
// Errors are classified with the catalog taxonomy: rejected credentials wrap
// catalog.ErrRemoteAuth and everything else wraps catalog.ErrNetwork.
package sources
