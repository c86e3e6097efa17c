// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import "github.com/vorlif/spreak/localize"

// i18nVars maps template keys and provider status values to their translatable message ids.
var i18nVars = map[string]localize.MsgID{
	"unknown":  "unknown",
	"updated":  "Updated",
	"nearest":  "Nearest",
	"online":   "online",
	"offline":  "offline",
	"active":   "active",
	"inactive": "inactive",
	"rijdend":  "driving",
	"driving":  "driving",
}
