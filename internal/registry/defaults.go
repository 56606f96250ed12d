package registry

// Pool names. Most match a backend identifier; the invidious stream walk and
// the relay list used by direct-stream adapters have their own pools.
const (
	PoolInvidious       = "invidious"
	PoolInvidiousStream = "invidious_stream"
	PoolPiped           = "piped"
	PoolMinTube         = "min_tube"
	PoolCobalt          = "cobalt"
	PoolStreamRelays    = "stream_relays"
)

// DefaultMinTubeListURL is the remote JSON array of MIN-Tube servers.
const DefaultMinTubeListURL = "https://raw.githubusercontent.com/Minotaur-ZAOU/test/refs/heads/main/min-tube-api.json"

// Defaults are the built-in host pools.
var Defaults = map[string][]string{
	PoolInvidious: {
		"https://app.materialio.us",
		"https://inv.kamuridesu.com",
		"https://inv.nadeko.net",
		"https://inv.vern.cc",
		"https://inv1.nadeko.net",
		"https://inv2.nadeko.net",
		"https://inv3.nadeko.net",
		"https://inv4.nadeko.net",
		"https://inv5.nadeko.net",
		"https://inv6.nadeko.net",
		"https://inv7.nadeko.net",
		"https://inv8.nadeko.net",
		"https://inv9.nadeko.net",
		"https://invidious.f5.si",
		"https://invidious.lunivers.trade",
		"https://invidious.nerdvpn.de",
		"https://invidious.nietzospannend.nl",
		"https://invidious.projectsegfau.lt",
		"https://invidious.protokolla.fi",
		"https://invidious.tiekoetter.com",
		"https://lekker.gay",
		"https://nyc1.iv.ggtyler.dev",
		"https://rust.oskamp.nl",
		"https://y.com.sb",
		"https://yewtu.be",
		"https://yt.thechangebook.org",
		"https://yt.vern.cc",
	},
	PoolInvidiousStream: {
		"https://inv.vern.cc",
		"https://invidious.fdn.fr",
		"https://iv.ggtyler.dev",
		"https://invidious.lunar.icu",
		"https://yt.artemislena.eu",
		"https://invidious.privacydev.net",
		"https://invidious.drgns.space",
		"https://inv.n8pjl.ca",
		"https://vid.puffyan.us",
		"https://yewtu.be",
		"https://invidious.nerdvpn.de",
		"https://inv.riverside.rocks",
		"https://invidious.slipfox.xyz",
		"https://invidious.esmailelbob.xyz",
	},
	PoolPiped: {
		"https://pipedapi.kavin.rocks",
		"https://pipedapi.adminforge.de",
		"https://pipedapi.in.projectsegfau.lt",
		"https://pipedapi.r4fo.com",
		"https://api.piped.yt",
		"https://pipedapi.moomoo.me",
		"https://pipedapi.syncpundit.io",
	},
	PoolMinTube: {
		"https://min-tube2-api.vercel.app",
		"https://min-tube-api-3.vercel.app",
		"https://min-tube-api4.vercel.app",
		"https://server-minp.vercel.app",
		"https://min-tube-api5.vercel.app",
	},
	PoolCobalt: {
		"https://api.cobalt.tools",
		"https://co.wuk.sh",
	},
	PoolStreamRelays: {
		"https://corsproxy.io/?",
		"https://api.allorigins.win/raw?url=",
		"https://api.codetabs.com/v1/proxy?quest=",
	},
}
