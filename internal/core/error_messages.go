package core

// error_messages.go maps technical errors to coded messages for the people
// uploading the monthly exports. Codes are quoted to support staff.
//
// Codes by category:
//
//	DB001-DB008    registry constraint and connectivity errors
//	VAL001-VAL002  request validation
//	FILE001-FILE005 upload and workbook errors
//	ING001-ING006  ingestion runs, reports and request throttling
//	ERR000         anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is an actionable, coded error description.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Registry constraints.
	{"duplicate key", UserMessage{
		Message: "Ya existe un registro con este documento",
		Action:  "Revise documentos duplicados en el archivo",
		Code:    "DB001",
	}},
	{"violates unique", UserMessage{
		Message: "Se encontró un valor duplicado",
		Action:  "Revise documentos duplicados en el archivo",
		Code:    "DB002",
	}},
	{"violates foreign key", UserMessage{
		Message: "La visita hace referencia a un niño inexistente",
		Action:  "Vuelva a cargar el archivo completo",
		Code:    "DB003",
	}},
	{"value too long", UserMessage{
		Message: "Un valor excede el tamaño permitido",
		Action:  "Acorte los textos largos del archivo",
		Code:    "DB008",
	}},

	// Registry connectivity.
	{"connection refused", UserMessage{
		Message: "No se pudo conectar con la base de datos",
		Action:  "Intente nuevamente en unos momentos",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Se interrumpió la conexión con la base de datos",
		Action:  "Intente nuevamente",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "La base de datos estaba ocupada con otra operación",
		Action:  "Intente nuevamente",
		Code:    "DB007",
	}},
	{"timeout", UserMessage{
		Message: "La operación tardó demasiado",
		Action:  "Divida el archivo o intente más tarde",
		Code:    "DB006",
	}},

	// Validation.
	{"invalid ingest request", UserMessage{
		Message: "Los datos de la carga no son válidos",
		Action:  "Indique mes (1-12), año y un archivo",
		Code:    "VAL001",
	}},
	{"invalid period", UserMessage{
		Message: "El periodo solicitado no es válido",
		Action:  "Use un mes entre 1 y 12 y un año de cuatro dígitos",
		Code:    "VAL002",
	}},

	// Files.
	{"file too large", UserMessage{
		Message: "El archivo excede el tamaño máximo permitido",
		Action:  "Divida el archivo en partes más pequeñas",
		Code:    "FILE001",
	}},
	{"unreadable workbook", UserMessage{
		Message: "No se pudo leer el archivo Excel",
		Action:  "Guarde el archivo como .xlsx y vuelva a intentarlo",
		Code:    "FILE002",
	}},
	{"unsupported file type", UserMessage{
		Message: "El archivo debe ser un Excel (.xlsx)",
		Action:  "Exporte la hoja en formato .xlsx",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No se seleccionó ningún archivo",
		Action:  "Seleccione un archivo Excel",
		Code:    "FILE004",
	}},
	{"empty file", UserMessage{
		Message: "El archivo está vacío",
		Action:  "Cargue un archivo con datos",
		Code:    "FILE005",
	}},

	// Ingestion.
	{"too many ingestions", UserMessage{
		Message: "El sistema está procesando otras cargas",
		Action:  "Espere un momento e intente nuevamente",
		Code:    "ING001",
	}},
	{"tenant ingestion already running", UserMessage{
		Message: "Ya hay una carga en curso para su cuenta",
		Action:  "Espere a que termine la carga anterior",
		Code:    "ING002",
	}},
	{"no records match", UserMessage{
		Message: "No se encontraron registros con los filtros seleccionados",
		Action:  "Cambie los filtros del reporte",
		Code:    "ING003",
	}},
	{"context canceled", UserMessage{
		Message: "La solicitud fue cancelada",
		Action:  "Intente nuevamente",
		Code:    "ING004",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "La solicitud excedió el tiempo límite",
		Action:  "Divida el archivo o revise su conexión",
		Code:    "ING005",
	}},
	{"rate limit exceeded", UserMessage{
		Message: "Demasiadas solicitudes",
		Action:  "Espere un minuto e intente nuevamente",
		Code:    "ING006",
	}},
}

var defaultMessage = UserMessage{
	Message: "Ocurrió un error inesperado",
	Action:  "Intente nuevamente o contacte a soporte",
	Code:    "ERR000",
}

// MapError returns the coded message for err, or ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
