// Package winget describes software through the local Windows Package
// Manager. It runs `winget show --name <name> --exact` and parses the
// "Key: value" manifest listing the tool prints. The provider is unavailable
// when the binary is not on PATH, which is every non-Windows host.
package winget
