// Package igdb looks up game metadata on IGDB.
//
// IGDB authenticates through Twitch client credentials. The provider fetches
// an app access token on first use, keeps it until shortly before expiry and
// drops it when the API answers 401. Queries use IGDB's Apicalypse syntax.
// Launcher ids map onto IGDB external game categories so Steam, GOG and Epic
// entries resolve without a fuzzy name search.
package igdb
