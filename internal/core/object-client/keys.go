package objectclient

import (
	"fmt"
	"path"
)

// DocumentKey is where a document's live file is stored.
func DocumentKey(userID, documentID, fileName string) string {
	return fmt.Sprintf("users/%s/documents/%s/%s", userID, documentID, path.Base(fileName))
}

// VersionKey is where an archived file for a document version is stored.
func VersionKey(userID, documentID string, version int, fileName string) string {
	return fmt.Sprintf("users/%s/documents/%s/versions/v%d/%s", userID, documentID, version, path.Base(fileName))
}
