package version

// Version is the DeskWarp build version. Release builds set it with:
//
//	go build -ldflags="-X 'github.com/BioHazard786/deskwarp/internal/version.Version=v1.0.0'"
var Version = "dev"

// AppID namespaces machine-derived identifiers so they differ from other apps.
const AppID = "deskwarp"
