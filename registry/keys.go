package registry

import "github.com/handylife-debug/webwaka-main-sub008/storage"

const (
	entryPrefix    = "cells"
	artifactPrefix = "artifacts"

	kindServer = "server"
	kindClient = "client"
	kindSchema = "schema"
)

func entryKey(id string) string {
	return entryPrefix + "/" + id
}

func artifactKey(m Manifest, upload, kind string) string {
	return storage.Join(artifactPrefix, m.Sector, m.Name, m.Version, upload, kind)
}

func cacheKey(id, channel string) string {
	return id + ":" + channel
}
