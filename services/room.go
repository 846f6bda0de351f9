package services

import (
	"fmt"
	"sort"
	"strings"
)

// RoomKey 根据两个用户 ID 生成房间号（排序后拼接，保证双方一致）
func RoomKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return fmt.Sprintf("%s_%s", ids[0], ids[1])
}

// RoomMember reports whether userID is one side of the room key.
func RoomMember(room, userID string) bool {
	if room == "" || userID == "" {
		return false
	}
	_, ok := Peer(room, userID)
	return ok
}

// Peer 返回房间中另一方的 ID
func Peer(room, userID string) (string, bool) {
	if strings.HasPrefix(room, userID+"_") {
		other := strings.TrimPrefix(room, userID+"_")
		if other != "" && RoomKey(userID, other) == room {
			return other, true
		}
	}
	if strings.HasSuffix(room, "_"+userID) {
		other := strings.TrimSuffix(room, "_"+userID)
		if other != "" && RoomKey(userID, other) == room {
			return other, true
		}
	}
	return "", false
}
