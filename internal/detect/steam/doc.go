// Package steam detects games installed through the Steam client.
//
// The detector reads steamapps/libraryfolders.vdf under the Steam root to find
// every library, then one appmanifest_<appid>.acf per installed app. Both files
// use Valve's key-value format. The Steam app id is carried verbatim as the
// candidate's external id.
package steam
