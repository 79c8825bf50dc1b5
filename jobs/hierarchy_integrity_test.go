package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(v string) *string { return &v }

func TestCheckPlacementsCleanHierarchy(t *testing.T) {
	partners := []placedPartner{
		{ID: "p1", IsRoot: true, Depth: 0, Path: "/p1"},
		{ID: "p2", ParentID: strPtr("p1"), Depth: 1, Path: "/p1/p2"},
		{ID: "p3", ParentID: strPtr("p2"), Depth: 2, Path: "/p1/p2/p3"},
	}

	assert.Empty(t, checkPlacements(partners))
}

func TestCheckPlacementsReportsMismatches(t *testing.T) {
	partners := []placedPartner{
		{ID: "p1", IsRoot: true, Depth: 0, Path: "/p1"},
		{ID: "p2", ParentID: strPtr("p1"), Depth: 5, Path: "/p1/p2"},
		{ID: "p3", ParentID: strPtr("ghost"), Depth: 1, Path: "/ghost/p3"},
		{ID: "p4", ParentID: strPtr("p1"), Depth: 1, Path: "/elsewhere/p4"},
		{ID: "p5", IsRoot: false, Depth: 0, Path: "/p5"},
	}

	problems := checkPlacements(partners)

	byID := make(map[string][]string)
	for _, problem := range problems {
		byID[problem.PartnerID] = append(byID[problem.PartnerID], problem.Description)
	}
	assert.Contains(t, byID["p2"], "depth is not parent depth plus one")
	assert.Contains(t, byID["p3"], "parent missing from hierarchy")
	assert.Contains(t, byID["p4"], "path does not extend parent path")
	assert.Contains(t, byID["p5"], "placed without parent but not marked root")
	assert.NotContains(t, byID, "p1")
}

func TestCheckPlacementsRejectsForeignPathTail(t *testing.T) {
	problems := checkPlacements([]placedPartner{
		{ID: "p1", IsRoot: true, Depth: 0, Path: "/other"},
	})

	assert.Len(t, problems, 1)
	assert.Equal(t, "path does not end with own id", problems[0].Description)
}
