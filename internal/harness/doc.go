// Package harness runs reconciliation scenarios end to end.
//
// A scenario is a YAML file describing an export (patient rows and
// questionnaire responses), the registry rows that already exist, and the
// outcome expected after one sync. The harness runs the real pipeline against
// an in-memory registry:
//
//  1. Build the export from the scenario rows
//  2. Download a snapshot and index it
//  3. Reconcile the export against the index
//  4. Issue study ids and import the new records
//  5. Reconcile again and require an empty delta
//
// Step 5 checks that a second sync of the same export is a no-op.
//
// Example scenario:
//
//	name: second-phq9-gets-instance-2
//	description: A new PHQ-9 for a registered participant is appended
//	patients:
//	  - {id: "1255217154", nhsnumber: "9910362813", birthdate: "1985-03-14"}
//	registry:
//	  - {study_id: "1", id: "1255217154", redcap_repeat_instrument: "", redcap_repeat_instance: ""}
//	responses:
//	  - id: "1589930999"
//	    patient: "1255217154"
//	    title: Depression (PHQ-9)
//	    scores: ["1", "1", "1", "1", "1", "1", "1", "1", "1"]
//	    categories: {Total: "9"}
//	expect:
//	  records:
//	    - {response_id: "1589930999", study_id: "1", instrument: phq9, instance: 1}
//
// Results can be compared against golden snapshots with RunWithGolden.
package harness
