// Package que is the transport to the Actron Que cloud API.
//
// Client pairs with the account, keeps an OAuth access token fresh and
// fetches status documents and system lists. ReplaySource serves the same
// interfaces from a local file for offline use and tests.
//
// Status documents are decoded with json.Number so the attribute layer can
// keep integers and floats apart.
package que
