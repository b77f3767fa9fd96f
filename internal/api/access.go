package api

import (
	"context"
	"net/http"
	"strconv"
)

// Authorization is a doctor-patient relation created by the patient.
type Authorization struct {
	RelationID int64  `json:"relation_id"`
	DoctorName string `json:"doctor_name"`
	CreatedAt  *Time  `json:"created_at,omitempty"`
}

// AuthorizedDoctor is a doctor with access to the patient's records.
type AuthorizedDoctor struct {
	DoctorID        int64  `json:"doctor_id"`
	FullName        string `json:"full_name"`
	Hospital        string `json:"hospital,omitempty"`
	AuthorizedSince *Time  `json:"authorized_since,omitempty"`
}

// AccessRequest is a doctor's request to view a patient's records. Patients
// see DoctorName, doctors see PatientName and Status.
type AccessRequest struct {
	RequestID   int64  `json:"request_id"`
	DoctorName  string `json:"doctor_name,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	Status      string `json:"status,omitempty"`
	CreatedAt   *Time  `json:"created_at,omitempty"`
}

// Patient is a patient a doctor has access to.
type Patient struct {
	PatientID int64  `json:"patient_id"`
	FullName  string `json:"full_name"`
	Gender    string `json:"gender,omitempty"`
	Age       *int   `json:"age,omitempty"`
}

// AuthorizeDoctor grants a doctor access to the signed-in patient's records.
func (c *Client) AuthorizeDoctor(ctx context.Context, doctorID int64) (*Authorization, error) {
	var data struct {
		Relation Authorization `json:"relation"`
	}
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/patient/authorize-doctor",
		body:   map[string]int64{"doctor_id": doctorID},
		data:   &data,
	})
	if err != nil {
		return nil, err
	}
	return &data.Relation, nil
}

// AuthorizedDoctors lists doctors with access to the signed-in patient.
func (c *Client) AuthorizedDoctors(ctx context.Context) ([]AuthorizedDoctor, error) {
	var data struct {
		Doctors []AuthorizedDoctor `json:"doctors"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/patient/authorized-doctors",
		data:   &data,
	})
	return data.Doctors, err
}

// RevokeDoctor removes a doctor's access.
func (c *Client) RevokeDoctor(ctx context.Context, doctorID int64) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   Prefix + "/patient/authorized-doctors/" + strconv.FormatInt(doctorID, 10),
	})
}

// AccessRequests lists pending requests addressed to the signed-in patient.
func (c *Client) AccessRequests(ctx context.Context) ([]AccessRequest, error) {
	return c.accessRequests(ctx, Prefix+"/patient/access-requests")
}

// ApproveRequest approves a pending access request.
func (c *Client) ApproveRequest(ctx context.Context, requestID int64) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   accessRequestPath("/patient", requestID) + "/approve",
	})
}

// RejectRequest rejects a pending access request.
func (c *Client) RejectRequest(ctx context.Context, requestID int64) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   accessRequestPath("/patient", requestID) + "/reject",
	})
}

// RequestPatientAccess asks a patient for access to their records.
func (c *Client) RequestPatientAccess(ctx context.Context, patientID int64) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/doctor/request-access",
		body:   map[string]int64{"patient_id": patientID},
	})
}

// DoctorAccessRequests lists the signed-in doctor's requests, newest first.
func (c *Client) DoctorAccessRequests(ctx context.Context) ([]AccessRequest, error) {
	return c.accessRequests(ctx, Prefix+"/doctor/access-requests")
}

// DeleteAccessRequest cancels one of the signed-in doctor's requests.
func (c *Client) DeleteAccessRequest(ctx context.Context, requestID int64) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		path:   accessRequestPath("/doctor", requestID),
	})
}

// DoctorPatients lists the patients the signed-in doctor can view.
func (c *Client) DoctorPatients(ctx context.Context) ([]Patient, error) {
	var data struct {
		Patients []Patient `json:"patients"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/doctor/patients",
		data:   &data,
	})
	return data.Patients, err
}

// PatientRecords returns a patient's most recent records.
func (c *Client) PatientRecords(ctx context.Context, patientID int64) ([]Record, error) {
	var data struct {
		Records []Record `json:"records"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/doctor/patients/" + strconv.FormatInt(patientID, 10) + "/bp-records",
		data:   &data,
	})
	return data.Records, err
}

func (c *Client) accessRequests(ctx context.Context, path string) ([]AccessRequest, error) {
	var data struct {
		Requests []AccessRequest `json:"requests"`
	}
	err := c.do(ctx, call{method: http.MethodGet, path: path, data: &data})
	return data.Requests, err
}

func accessRequestPath(view string, requestID int64) string {
	return Prefix + view + "/access-requests/" + strconv.FormatInt(requestID, 10)
}
